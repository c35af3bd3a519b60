// Package openai implements the hosted provider for all three pipeline
// capabilities: Whisper transcription with verbose JSON segments, chat-model
// translation, and TTS speech synthesis decoded to audio tracks. Failures are
// classified into the retry/fallback taxonomy so the adapter chains can
// decide between retrying, falling back to a local engine, and aborting.
package openai
