package morphology

func englishFunctionWords() map[string]Tag {
	return buildLexicon(map[Tag][]string{
		Article: {"a", "an", "the"},

		Preposition: {
			"of", "at", "by", "for", "with", "about", "against", "between",
			"into", "through", "during", "before", "after", "above", "below",
			"to", "from", "up", "down", "in", "out", "on", "off", "over", "under",
			"among", "around", "behind", "beside", "beyond", "inside", "onto",
			"toward", "towards", "upon", "via", "within", "without", "across",
		},

		Conjunction: {
			"and", "or", "but", "if", "while", "because", "as", "until",
			"than", "so", "nor", "yet", "although", "though", "unless",
			"whether", "whereas", "since",
		},

		Particle: {"not", "no", "only", "just", "even"},

		Interjection: {
			"oh", "ah", "wow", "hey", "alas", "oops", "ouch", "hmm",
			"hello", "hi", "bye", "yeah", "yes", "ugh",
		},
	})
}

func russianFunctionWords() map[string]Tag {
	return buildLexicon(map[Tag][]string{
		Preposition: {
			"в", "во", "на", "с", "со", "к", "ко", "по", "за", "из", "у", "о",
			"об", "обо", "от", "до", "для", "без", "под", "над", "при", "про",
			"через", "между", "перед", "около", "вокруг", "после", "среди",
		},

		Conjunction: {
			"и", "а", "но", "или", "что", "чтобы", "если", "как", "когда",
			"да", "либо", "однако", "потому", "зато", "тоже", "также", "хотя",
		},

		Particle: {
			"не", "ни", "же", "ли", "бы", "вот", "даже", "только", "уже",
			"лишь", "ведь", "разве", "неужели", "пусть",
		},

		Interjection: {"ах", "ох", "эх", "ой", "увы", "ура", "эй", "ого", "ай", "ух"},
	})
}

func buildLexicon(groups map[Tag][]string) map[string]Tag {
	lexicon := make(map[string]Tag)
	for tag, words := range groups {
		for _, w := range words {
			lexicon[w] = tag
		}
	}
	return lexicon
}
