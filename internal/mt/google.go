// Package mt provides a machine-translation back-translator for the
// evaluation leg, as an alternative to prompting the generation model.
package mt

import (
	"context"
	"fmt"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// GoogleBackTranslator renders target-language text back into the source
// language via the Google Translate v2 API. A dedicated MT system gives
// the consistency check an opinion independent of the model that produced
// the translation.
type GoogleBackTranslator struct {
	credentialsFile string
}

func NewGoogleBackTranslator(credentialsFile string) *GoogleBackTranslator {
	return &GoogleBackTranslator{credentialsFile: credentialsFile}
}

// BackTranslate translates text from targetLang back into sourceLang.
func (g *GoogleBackTranslator) BackTranslate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	backTo, err := language.Parse(sourceLang)
	if err != nil {
		return "", fmt.Errorf("invalid source language %q: %w", sourceLang, err)
	}

	var opts []option.ClientOption
	if g.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(g.credentialsFile))
	}
	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("create translate client: %w", err)
	}
	defer client.Close()

	var tOpts *translate.Options
	if from, err := language.Parse(targetLang); err == nil {
		tOpts = &translate.Options{Source: from}
	}
	translations, err := client.Translate(ctx, []string{text}, backTo, tOpts)
	if err != nil {
		return "", fmt.Errorf("back-translation failed: %w", err)
	}
	if len(translations) == 0 {
		return "", fmt.Errorf("no translation returned")
	}
	return translations[0].Text, nil
}
