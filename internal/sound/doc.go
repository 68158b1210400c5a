// Package sound provides the audio and speech capabilities used by
// workflow actions, backed by external programs.
//
// Both capabilities run one process per call and wait for it to finish,
// so a sequential workflow continues only after the sound has played.
// Each call is bounded by a timeout; on cancellation the program gets
// SIGTERM and is killed shortly after.
//
// Configuration:
//
//	sound:
//	  player_command: "aplay"
//	  player_args: ["-q", "{file}"]
//	  speech_command: "espeak-ng"
//	  speech_args: ["-v", "{voice}", "{text}"]
//	  voice: "de"
//	  timeout: 30
package sound
