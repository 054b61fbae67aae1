package response

// Static replies used when generated text cannot be sent.
const (
	ApologyReply = "Sorry, something went wrong on our side. Could you please say that again?"
	SafeReply    = "Thanks for your message! What would you like to do next?"
	HandoffReply = "Thanks! A member of our team will take it from here and reply to you shortly."
	// LoopFallbackReply is used when the agent loop produced no text at all.
	LoopFallbackReply = "Sorry, I didn't quite get that. Would you like to see the menu?"
)
