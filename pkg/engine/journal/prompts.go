package journal

import "github.com/mvaldes/sentira/pkg/oracle"

type quickResponse struct {
	Title       string   `json:"title" jsonschema_description:"Short title for the entry"`
	Description string   `json:"description" jsonschema_description:"One or two sentences summarizing the entry"`
	MoodEmoji   string   `json:"mood_emoji" jsonschema_description:"Single emoji for the dominant mood"`
	Insights    []string `json:"insights" jsonschema_description:"Brief observations about the entry"`
}

var quickSchema = oracle.GenerateSchema[quickResponse]()

const quickAnalysisPrompt = `Eres un asistente de diario personal empático.
Lee la entrada del diario y produce un resumen breve e inmediato.

Instrucciones:
- El título es corto y concreto, sin comillas.
- La descripción resume la entrada en una o dos frases, en segunda persona.
- El emoji refleja el estado de ánimo dominante.
- Incluye de una a tres observaciones breves y útiles.
- Responde únicamente con el objeto JSON pedido.`
