package tts

// VoiceProfile describes a TTS voice selection.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier. For Coqui XTTS servers
	// this is the reference speaker WAV path used for voice cloning.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (gender, age, accent, etc.).
	Metadata map[string]string
}
