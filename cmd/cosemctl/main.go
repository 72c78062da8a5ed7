// cosemctl works with a COSEM logical device described by a YAML device
// model.
//
// It serves one request per invocation against the device, keeping object
// state and the invocation counter in files between runs, and ciphers,
// deciphers and decodes APDU payloads.
//
// Usage:
//
//	cosemctl [--model meter.yaml] [--state state.cbor] <command> [args]
//
// Commands:
//
//	decode     decode an A-XDR value
//	get        read an attribute
//	set        write an attribute
//	action     invoke a method
//	describe   read every attribute of an object
//	tick       advance the clock-driven objects
//	run        tick once per second until interrupted
//	cipher     cipher an APDU
//	decipher   decipher a ciphered APDU
//	hls        answer or check an HLS challenge
//
// Every flag can also be set through a COSEM_ environment variable, e.g.
// COSEM_MODEL=meter.yaml.
//
// Example:
//
//	cosemctl --model meter.yaml get register 1-0:1.8.0.255 2
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
