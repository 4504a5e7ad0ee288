package insight

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mvaldes/sentira/pkg/model"
	"github.com/mvaldes/sentira/pkg/oracle"
)

const (
	toolEmotionalInsights = "emotional_insights"
	toolEmotionsFromFact  = "emotions_from_fact"
)

// clarificationMessage is returned when the router cannot map the question
// to a capability; no retrieval is performed in that case.
const clarificationMessage = "No estoy seguro de si tu pregunta se refiere a una emoción o a una actividad. " +
	"¿Puedes reformularla? Por ejemplo: \"¿Qué me hace sentir alegría?\" o \"¿Cómo me hace sentir correr?\""

const routerPrompt = `Eres el enrutador de un diario emocional personal.
Decide si la pregunta del usuario busca:
- qué actividades se asocian con una emoción concreta (usa emotional_insights), o
- qué emociones despierta una actividad concreta (usa emotions_from_fact).
Llama como máximo a una herramienta. Si la pregunta no encaja claramente en
ninguna de las dos, no llames a ninguna herramienta.`

const answerPrompt = `Eres un asistente de diario personal empático.
Responde a la pregunta del usuario en español, en segunda persona, basándote
únicamente en los datos recuperados de su diario. Sé cercano, concreto y breve.
No inventes experiencias que no estén en los datos.`

type emotionArgs struct {
	Emotion string `json:"emotion" jsonschema_description:"The emotion the user is asking about"`
}

type factArgs struct {
	Fact string `json:"fact" jsonschema_description:"The activity or situation the user is asking about"`
}

var routerTools = []oracle.ToolDef{
	{
		Name:        toolEmotionalInsights,
		Description: "Busca en el diario qué actividades se asocian con una emoción.",
		Parameters:  oracle.GenerateSchema[emotionArgs](),
	},
	{
		Name:        toolEmotionsFromFact,
		Description: "Busca en el diario qué emociones despierta una actividad.",
		Parameters:  oracle.GenerateSchema[factArgs](),
	},
}

// AnswerQuestion routes a free-form question to one of the two retrievals,
// or declines with a fixed clarification. When a retrieval runs, one more
// oracle call phrases the final answer grounded in the result.
func (r *Retriever) AnswerQuestion(ctx context.Context, userID, question string) (model.QuestionAnswer, error) {
	name, argsJSON, err := r.oracle.RouteTool(ctx, routerPrompt, question, routerTools)
	if err != nil {
		return model.QuestionAnswer{}, fmt.Errorf("route question: %w", err)
	}
	if name == "" {
		return model.QuestionAnswer{Question: question, Answer: clarificationMessage}, nil
	}

	var result model.InsightResult
	switch name {
	case toolEmotionalInsights:
		var args emotionArgs
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return model.QuestionAnswer{}, fmt.Errorf("%w: tool arguments: %v", model.ErrExtractionFormat, err)
		}
		result, err = r.InsightsForEmotion(ctx, userID, args.Emotion)
	case toolEmotionsFromFact:
		var args factArgs
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return model.QuestionAnswer{}, fmt.Errorf("%w: tool arguments: %v", model.ErrExtractionFormat, err)
		}
		result, err = r.InsightsForFact(ctx, userID, args.Fact)
	default:
		return model.QuestionAnswer{Question: question, Answer: clarificationMessage}, nil
	}
	if err != nil {
		return model.QuestionAnswer{}, err
	}

	// An empty retrieval already carries its fixed empathetic message;
	// there is nothing for the oracle to ground a phrasing on.
	if result.Fallback {
		return model.QuestionAnswer{Question: question, Answer: result.Message, Data: &result}, nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return model.QuestionAnswer{}, err
	}
	input := fmt.Sprintf("Pregunta: %s\n\nDatos recuperados del diario:\n%s", question, payload)
	answer, err := r.oracle.CompleteText(ctx, answerPrompt, input, 600)
	if err != nil {
		return model.QuestionAnswer{}, fmt.Errorf("phrase answer: %w", err)
	}
	return model.QuestionAnswer{Question: question, Answer: answer, Data: &result}, nil
}
