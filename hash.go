package thunkgen

import "crypto/sha256"

// FunctionHash is the wire identity of an exported function: the SHA-256
// of "<library>:<function>". Guest stubs embed it at the call site, host
// export tables carry it, and the emulator binds the two sides by
// comparing hashes rather than symbol names.
func FunctionHash(library, function string) [sha256.Size]byte {
	return sha256.Sum256([]byte(library + ":" + function))
}

// CallbackHash is the wire identity of a callback signature. The library
// name is deliberately absent so equal signatures share one endpoint
// across libraries.
func CallbackHash(signature string) [sha256.Size]byte {
	return sha256.Sum256([]byte("fexcallback_" + signature))
}
