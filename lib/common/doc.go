// Package common provides the ambient pieces shared by the library and the CLI:
// logging and configuration.
//
// Key Components:
//
//   - Logger: every package obtains a named logger through dragonboat's logger
//     package (logger.GetLogger("store")). InitLoggers installs a factory that renders
//     all of them through a single zap logger, either as console text or as JSON, and
//     sets the level per logger name.
//
//   - Config: the settings of the command line tool, with a String() summary that is
//     printed on debug level.
package common
