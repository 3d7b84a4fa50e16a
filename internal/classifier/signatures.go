// File: internal/classifier/signatures.go
package classifier

import "regexp"

// defaultGroups returns the built-in signature set, ordered by priority.
// A visible CAPTCHA blocks everything else regardless of what other signals
// are on the page, so it is always evaluated first.
func defaultGroups() []SignatureGroup {
	return []SignatureGroup{
		{
			Kind: KindCaptcha,
			Structural: []StructuralMarker{
				// The reCAPTCHA challenge frame itself, not the invisible badge.
				{Tag: "iframe", Attr: "src", Contains: []string{"recaptcha", "bframe"}},
				{Tag: "iframe", Attr: "title", Contains: []string{"recaptcha"}},
				{Attr: "id", Contains: []string{"captcha"}},
				{Attr: "class", Contains: []string{"captcha"}},
			},
		},
		{
			Kind: KindTwoFactor,
			Structural: []StructuralMarker{
				{Tag: "input", Attr: "name", Contains: []string{"verification"}},
				{Tag: "input", Attr: "name", Contains: []string{"pin"}},
				{Tag: "input", Attr: "id", Contains: []string{"verification"}},
				{Tag: "input", Attr: "id", Contains: []string{"challenge"}},
				{Attr: "data-test-id", Contains: []string{"verification"}},
			},
			Text: []*regexp.Regexp{
				regexp.MustCompile(`enter.{0,40}verification.{0,40}code`),
				regexp.MustCompile(`enter.{0,40}security.{0,40}code`),
				regexp.MustCompile(`two.{0,10}factor`),
				regexp.MustCompile(`6.{0,10}digit.{0,10}code`),
			},
		},
		{
			Kind: KindAccountWarning,
			Text: []*regexp.Regexp{
				regexp.MustCompile(`unusual.{0,20}activity`),
				regexp.MustCompile(`suspicious.{0,20}activity`),
				regexp.MustCompile(`temporarily.{0,20}restricted`),
				regexp.MustCompile(`account.{0,20}restricted`),
			},
		},
	}
}
