package astieit

import "github.com/asticode/go-astikit"

// Right now we use a global logger because it feels weird to inject a logger in pure functions
// Indeed, pure decoders only need it to let the developer know when an unhandled descriptor or an
// anomalous field has been found in the stream. Long lived objects accept their own logger.
var logger = astikit.AdaptStdLogger(nil)

// SetLogger replaces the package logger
func SetLogger(l astikit.StdLogger) { logger = astikit.AdaptStdLogger(l) }
