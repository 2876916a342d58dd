package callflow

// Spoken prompts. Each gathering phase has a plain variant and a simplified
// one used after a failed attempt: shorter sentences, explicit options.

const (
	defaultGreeting = "Welcome to the after hours coverage line."

	promptPin       = "I couldn't match your phone number. Please say or enter your four digit PIN."
	promptPinSimple = "Please say your PIN, one digit at a time."

	promptJobCode       = "Which job is this about? Please say the job code."
	promptJobCodeSimple = "Please spell the job code, one letter or number at a time."

	promptOptions       = "Would you like to reschedule this shift, leave it open for someone else to pick up, or speak to a person?"
	promptOptionsSimple = "Say reschedule, open, or person."

	promptDateTime       = "When would you like to move the shift to?"
	promptDateTimeSimple = "Please say a day and a time. For example, next Tuesday at 10 am."
	promptNeedTime       = "Got it. What time on that day?"
	promptNeedDate       = "Got it. Which day should that be?"

	promptReason     = "Why can't you make this shift?"
	promptReasonMore = "Could you tell me a little more about why you can't make it?"

	speechNoProvider    = "Sorry, I couldn't find an account for this number. Goodbye."
	speechNoShifts      = "I couldn't find any upcoming shifts for that job. Let me connect you to someone who can help."
	speechShiftFilled   = "Sorry, that shift has just been changed by someone else."
	speechTransferring  = "One moment. I'll connect you to someone who can help."
	speechTransferNoNum = "I can't connect you to anyone right now, but someone will call you back shortly. Goodbye."
	speechReleaseDone   = "Thanks for letting us know. We'll offer the shift to your team now. Goodbye."
	speechTakingTooLong = "This is taking longer than expected."
)
