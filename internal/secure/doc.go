// Package secure keeps credential payloads handled by the CLI in memguard
// enclaves: encrypted while at rest in memory, locked against swapping, and
// wiped when destroyed.
//
// A payload is read once from its source, sealed, and only decrypted for the
// duration of a callback:
//
//	p, err := secure.ReadPayload(os.Stdin)
//	if err != nil {
//	    return err
//	}
//	defer p.Destroy()
//
//	err = p.Use(func(b []byte) error {
//	    return store(b)
//	})
//
// Callers that exit should call memguard.Purge, which the CLI does through
// memguard.CatchInterrupt and a deferred Purge in main.
package secure
