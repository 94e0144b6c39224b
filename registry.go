/*
Package fakeredis command registry.

The registry maps canonical command names to descriptors (name, arity,
handler). Families register themselves from their own files; the
dispatcher in server.go consults the table for resolution and arity
validation. Multi-word administrative commands (CLIENT ID, CONFIG GET,
XGROUP CREATE, ...) resolve through subcommand switches inside their
family handler.
*/
package fakeredis

// registerAllHandlers installs the complete built-in command surface
func (s *Server) registerAllHandlers() {
	s.registerConnectionHandlers()
	s.registerGenericHandlers()
	s.registerStringHandlers()
	s.registerBitmapHandlers()
	s.registerHyperLogLogHandlers()
	s.registerListHandlers()
	s.registerHashHandlers()
	s.registerSetHandlers()
	s.registerZSetHandlers()
	s.registerStreamHandlers()
	s.registerGeoHandlers()
	s.registerPubSubHandlers()
	s.registerTransactionHandlers()
	s.registerScriptingHandlers()
	s.registerServerHandlers()
}
