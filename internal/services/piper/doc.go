// Package piper provides offline speech synthesis through the piper command
// line tool. It serves as the local fallback behind hosted synthesizers in
// the synthesize chain, selecting an onnx voice model per target language.
package piper
