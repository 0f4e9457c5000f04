package telephony

// Instruction is a single command returned to the gateway in a webhook
// response. The gateway executes instructions in order.
type Instruction struct {
	// Type is one of "speak", "gather", "transfer", "hangup", "message".
	Type string `json:"type"`
	// Text is the content to speak (or send, for message instructions).
	Text string `json:"text,omitempty"`
	// Inputs selects what a gather collects: "dtmf", "speech" or both.
	Inputs []string `json:"inputs,omitempty"`
	// TimeoutSecs bounds how long a gather waits for input.
	TimeoutSecs int `json:"timeout_secs,omitempty"`
	// To is the destination for transfer instructions (E.164).
	To string `json:"to,omitempty"`
}

// InstructionResponse is the webhook response body.
type InstructionResponse struct {
	Instructions []Instruction `json:"instructions"`
}

// Speak returns a speak instruction.
func Speak(text string) Instruction {
	return Instruction{Type: "speak", Text: text}
}

// Gather returns a gather instruction collecting both touch-tone digits and
// speech, bounded by the given timeout.
func Gather(timeoutSecs int) Instruction {
	return Instruction{Type: "gather", Inputs: []string{"dtmf", "speech"}, TimeoutSecs: timeoutSecs}
}

// Transfer returns a transfer instruction handing the call to a human line.
func Transfer(to string) Instruction {
	return Instruction{Type: "transfer", To: to}
}

// Hangup returns a hangup instruction.
func Hangup() Instruction {
	return Instruction{Type: "hangup"}
}

// Message returns an outbound text-message instruction, used when the
// session is a message exchange rather than a live call.
func Message(text string) Instruction {
	return Instruction{Type: "message", Text: text}
}
