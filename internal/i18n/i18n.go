// Package i18n is the string lookup collaborator. The core never embeds
// user-facing copy; it passes semantic keys (topic names, labels) through
// Translate and supplies its own fallback text.
package i18n

// Translate resolves a semantic key for a language. Lookup order: requested
// language, English, then the caller's fallback. An unknown language behaves
// like English so a missing catalog never blocks a session.
func Translate(language, key, fallback string) string {
	if catalog, ok := catalogs[language]; ok {
		if s, ok := catalog[key]; ok {
			return s
		}
	}
	if language != "en" {
		if s, ok := catalogs["en"][key]; ok {
			return s
		}
	}
	return fallback
}

// Supported reports whether a language has a catalog
func Supported(language string) bool {
	_, ok := catalogs[language]
	return ok
}

var catalogs = map[string]map[string]string{
	"en": {
		"topic.goal":          "What do you want the prompt to achieve?",
		"topic.role":          "What role should the assistant take on?",
		"topic.context":       "What background context matters here?",
		"topic.output_format": "How should the output be formatted?",
		"topic.warning":       "What should the assistant avoid doing?",
		"topic.example":       "Can you give an example of a good result?",
		"guided.goal":         "What do you want the prompt to achieve?",
		"guided.audience":     "Who is the audience for this prompt?",
		"guided.tone":         "What tone should the result have?",
		"guided.length":       "How long should the result be?",
		"guided.detail":       "What key details must be included?",
		"guided.success":      "What does a successful result look like?",
		"label.poor":          "Poor",
		"label.fair":          "Fair",
		"label.good":          "Good",
		"label.excellent":     "Excellent",
	},
	"ja": {
		"topic.goal":          "このプロンプトで何を達成したいですか？",
		"topic.role":          "アシスタントにどんな役割を求めますか？",
		"topic.context":       "重要な背景情報はありますか？",
		"topic.output_format": "出力はどんな形式が良いですか？",
		"topic.warning":       "避けてほしいことはありますか？",
		"topic.example":       "良い結果の例を挙げられますか？",
		"guided.goal":         "このプロンプトで何を達成したいですか？",
		"guided.audience":     "このプロンプトの対象者は誰ですか？",
		"guided.tone":         "どんなトーンが良いですか？",
		"guided.length":       "結果の長さはどのくらいが良いですか？",
		"guided.detail":       "必ず含めたい詳細は何ですか？",
		"guided.success":      "成功した結果とはどんなものですか？",
		"label.poor":          "要改善",
		"label.fair":          "まずまず",
		"label.good":          "良い",
		"label.excellent":     "素晴らしい",
	},
	"es": {
		"topic.goal":          "¿Qué quieres lograr con el prompt?",
		"topic.role":          "¿Qué rol debe asumir el asistente?",
		"topic.context":       "¿Qué contexto es importante aquí?",
		"topic.output_format": "¿Cómo debe formatearse el resultado?",
		"topic.warning":       "¿Qué debe evitar el asistente?",
		"topic.example":       "¿Puedes dar un ejemplo de un buen resultado?",
		"guided.goal":         "¿Qué quieres lograr con el prompt?",
		"guided.audience":     "¿Quién es la audiencia de este prompt?",
		"guided.tone":         "¿Qué tono debe tener el resultado?",
		"guided.length":       "¿Qué extensión debe tener el resultado?",
		"guided.detail":       "¿Qué detalles clave deben incluirse?",
		"guided.success":      "¿Cómo se ve un buen resultado?",
		"label.poor":          "Deficiente",
		"label.fair":          "Aceptable",
		"label.good":          "Bueno",
		"label.excellent":     "Excelente",
	},
}
