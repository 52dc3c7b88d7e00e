// Package engines contains the speech recognition backends: whisper.cpp
// (offline subprocess) and Google Cloud Speech (online). Each implements
// ttypes.Transcriber.
package engines
