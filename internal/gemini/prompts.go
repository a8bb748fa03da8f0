package gemini

// Analysis modes applied to a chat's stored history. Fixed modes use the
// instruction table below; ModeCustom carries a free-text user query.
const (
	ModeSummary   = "summary"
	ModeInsights  = "insights"
	ModeTopics    = "topics"
	ModeSentiment = "sentiment"
	ModeCustom    = "custom"
)

// analysisInstructions maps each fixed analysis mode to the system
// instruction sent with the chat history.
var analysisInstructions = map[string]string{
	ModeSummary: `You are a conversation analyst. Produce a concise summary of the following chat history: the main narrative, decisions made, and open items. Keep it under 300 words and write in plain prose, no markdown headings.`,

	ModeInsights: `You are a conversation analyst. Extract the key insights from the following chat history: non-obvious conclusions, agreements, commitments, and risks. Present each insight as a short bullet line.`,

	ModeTopics: `You are a conversation analyst. List the main topics discussed in the following chat history, most prominent first. One short line per topic with a brief qualifier of how much attention it received.`,

	ModeSentiment: `You are a conversation analyst. Describe the overall sentiment and emotional dynamics of the following chat history: tone per participant where distinguishable, shifts over time, and notable friction or warmth. Keep it under 250 words.`,
}

// CustomAnalysisInstruction frames a free-form user question about the chat
// history. The question itself is appended as the last user turn.
const CustomAnalysisInstruction = `You are a conversation analyst. You will receive a chat history followed by a question about it. Answer the question using only the provided history. If the history does not contain the answer, say so plainly.`

// TranscriptionInstruction is sent alongside the raw audio part.
const TranscriptionInstruction = `Transcribe this voice message verbatim. Output only the transcribed text in its original language, with no commentary, labels, or quotation marks. If the audio contains no intelligible speech, output an empty string.`
