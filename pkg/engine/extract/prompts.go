package extract

import (
	"sort"
	"strings"
)

const extractionRules = `Reglas:
1. Cada hecho es una frase corta en infinitivo (máximo 5 palabras) que nombra la actividad.
2. Elimina detalles de tiempo y lugar ("ayer", "en el parque"); conserva solo la actividad.
3. Normaliza formulaciones casi idénticas a una sola frase canónica.
4. Incluye únicamente emociones con valor mayor que 0.
5. Los valores de las emociones están entre 0 y 1.
6. Responde únicamente con el objeto JSON pedido.`

func (e *Engine) buildPrompt() string {
	var b strings.Builder
	b.WriteString("Analiza el texto del diario y extrae los hechos mencionados junto con sus emociones asociadas.\n\n")

	if e.strict {
		b.WriteString("Temas y hechos disponibles:\n")
		themes := make([]string, 0, len(e.taxonomy))
		for theme := range e.taxonomy {
			themes = append(themes, theme)
		}
		sort.Strings(themes)
		for _, theme := range themes {
			facts := make([]string, 0, len(e.taxonomy[theme]))
			for f := range e.taxonomy[theme] {
				facts = append(facts, f)
			}
			sort.Strings(facts)
			b.WriteString(theme + ": " + strings.Join(facts, ", ") + "\n")
		}
		b.WriteString("\nUsa los nombres exactos de los hechos existentes. Para hechos nuevos usa el tema \"" + OtherTheme + "\".\n\n")
	}

	b.WriteString("Emociones posibles:\n")
	b.WriteString(strings.Join(e.vocab, ", "))
	b.WriteString("\nNo uses emociones fuera de esta lista.\n\n")
	b.WriteString(extractionRules)
	return b.String()
}
