package openai

// answerSystemPrompt instructs the generation model to stay grounded in the
// provided passages and to cite them by number.
const answerSystemPrompt = `You answer questions using ONLY the numbered passages provided in the prompt.

Rules:
- Base every claim on the passages. If the passages do not contain the answer, say so.
- Cite the passage you rely on with its number in square brackets, e.g. [2].
- Address the query even if it is not phrased as a proper question.
- Answer in English, concisely.`

// scoringSystemPrompt instructs the model to rate passage relevance for
// reranking. The response must be a bare JSON array of numbers.
const scoringSystemPrompt = `You rate how relevant each numbered passage is to the query.

Output ONLY a valid JSON array of numbers between 0 and 1, one per passage,
in passage order. 1 means the passage directly answers the query, 0 means it
is unrelated. Start your response with [ and end with ]. No preamble, no
explanation, no trailing text.`
