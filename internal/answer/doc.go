// Package answer synthesizes answers to questions about indexed code.
//
// The Synthesizer retrieves the top candidates, reranks them and hands the
// best few to a Completer (OpenAI-compatible chat or a local Ollama server).
// When no completer is configured, or the completer fails, the answer is
// built from templates chosen by the question's wording. Credential failures
// are reported with a notice telling the user which key to check.
package answer
