// Package config manages the catalog of programming languages the shared
// code editor offers.
//
// The catalog is read from languages.json in the configuration directory.
// When that file is missing the built-in catalog is used. Each entry pairs a
// language name with the runtime version forwarded to the code runner, so a
// client that only names a language still gets a runnable request.
//
// Usage:
//
//	mgr, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//	lang, err := mgr.Lookup("python")
package config
