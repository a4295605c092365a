// Package launcher starts a browser and discovers its debugging endpoint.
//
// The browser announces its endpoint on stdout or stderr:
//
//	DevTools listening on ws://127.0.0.1:41235/devtools/browser/<id>
//
// The announced URL is cached in <user-data-dir>/ws-endpoint.txt. When a
// second launch against the same profile is handed to the running instance,
// no announcement is printed; the cached URL is used instead.
//
// Usage:
//
//	l := launcher.New(launcher.OptionsFromConfig(cfg.Browser))
//	b, err := l.LaunchAndConnect(ctx, client)
//	if err != nil {
//		return err
//	}
//	defer b.Close()
package launcher
