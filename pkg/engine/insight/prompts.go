package insight

import (
	"encoding/json"

	"github.com/mvaldes/sentira/pkg/oracle"
)

type emotionPatterns struct {
	Patterns        []string `json:"patterns" jsonschema_description:"Main recurring patterns identified"`
	Triggers        []string `json:"triggers" jsonschema_description:"Situations or factors that trigger the emotion"`
	Frequency       string   `json:"frequency" jsonschema_description:"Observed frequency: alta, media or baja"`
	RelatedEmotions []string `json:"related_emotions" jsonschema_description:"Related emotions found in the entries"`
	Context         string   `json:"context" jsonschema_description:"Brief description of the overall context"`
}

type factPatterns struct {
	PrimaryEmotions      []string `json:"primary_emotions" jsonschema_description:"Main emotions associated with the activity"`
	EmotionalImpact      string   `json:"emotional_impact" jsonschema_description:"Description of the overall emotional impact"`
	ContextVariations    []string `json:"context_variations" jsonschema_description:"Different contexts identified"`
	Frequency            string   `json:"frequency" jsonschema_description:"Frequency of the activity: alta, media or baja"`
	AssociatedActivities []string `json:"associated_activities" jsonschema_description:"Related activities found"`
}

var (
	emotionPatternsSchema = oracle.GenerateSchema[emotionPatterns]()
	factPatternsSchema    = oracle.GenerateSchema[factPatterns]()

	emptyEmotionPatterns = mustJSON(emotionPatterns{
		Patterns:        []string{},
		Triggers:        []string{},
		Frequency:       "no determinada",
		RelatedEmotions: []string{},
		Context:         "",
	})
	emptyFactPatterns = mustJSON(factPatterns{
		PrimaryEmotions:      []string{},
		EmotionalImpact:      "no determinado",
		ContextVariations:    []string{},
		Frequency:            "no determinada",
		AssociatedActivities: []string{},
	})
)

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

const emotionPatternsPrompt = `Analiza los patrones emocionales en las entradas proporcionadas.
Instrucciones:
- Identifica patrones claros y frecuentes
- Agrupa situaciones similares
- Identifica factores desencadenantes comunes
- Si es una emoción positiva, enfócate solo en experiencias positivas
- Para emociones negativas, identifica también elementos positivos si existen
- Responde únicamente con el objeto JSON pedido.`

const factPatternsPrompt = `Analiza cómo esta actividad o situación afecta emocionalmente al usuario.
Instrucciones:
- Identifica las emociones más frecuentes
- Detecta patrones en el impacto emocional
- Analiza el contexto de la actividad
- Identifica variaciones según circunstancias
- Responde únicamente con el objeto JSON pedido.`
