package wizard

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/civictrack/civictrack-backend/pkg/i18n"
)

func TestInvalidTransition_Translated(t *testing.T) {
	actions := []string{
		actionAttachPhoto, actionSetLocation, actionContinueToDescribe, actionBackToCapture,
		actionAnalyze, actionCancelAnalysis, actionBackToDescribe, actionContinueToConfirm, actionSubmit,
	}

	for _, locale := range []string{i18n.LocaleEnglish, i18n.LocaleSpanish} {
		ctx := i18n.WithLocale(context.Background(), locale)
		for _, action := range actions {
			for stage := range stageNames {
				msg := invalidTransition(action, stage).Localize(ctx)
				assert.NotContains(t, msg, "wizard.", "%s %s/%s", locale, action, stage)
				assert.False(t, strings.Contains(msg, "{"), "%s %s/%s: %q", locale, action, stage, msg)
			}
		}
	}

	ctx := i18n.WithLocale(context.Background(), i18n.LocaleSpanish)
	assert.Equal(t, "no se puede analizar el problema mientras el reporte está en el paso de clasificación",
		invalidTransition(actionAnalyze, StageClassify).Localize(ctx))
}
