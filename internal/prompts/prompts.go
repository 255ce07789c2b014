package prompts

// SystemHeader opens every system prompt.
const SystemHeader = "You are the user's Interview Assistant. Respond as the developer speaking to the client. Keep replies offline-first."

const (
	knowledgeMissing = "Knowledge not yet loaded."
	knowledgeTitle   = "LOADED KNOWLEDGE:"
	responseShape    = `Return JSON: {"response_id","source_transcript","mode","assistant_response":{"summary","next_line","probe"},"why"}`
)

// Diagnostic prompts for the LLM readiness probe.
const (
	ProbeSystem = "You are a diagnostic agent verifying connectivity."
	ProbeUser   = `Reply with the single word "online" if you received this message.`
)
