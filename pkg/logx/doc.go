// Package logx is rimetick's structured logging layer.
//
// logx.Logger is a small value type over zerolog:
//   - console output stays readable (short timestamp + file:line caller)
//   - the optional file sink is JSON, one event per line
//   - Service.Apply swaps level and sinks at runtime (config hot reload)
package logx
