/*
Core implements the per-symbol strategy loop.

# Module
  - in-memory bus: receives market data & execution reports then pushes them to the runtime
  - runtime: single thread per symbol; book reconstruction, feature derivation, signal evaluation, execution
  - position reducer: stores asset state in memory
  - risk engine: validates order intents produced by the runtime against position state

# Source
 1. market data & execution reports from the venue feed
 2. synthetic market data from the paper-trading generator

# Produce
  - new-order / cancel / cancel-replace requests to the order gateway

# Sharded
  - one runtime goroutine per symbol; nothing is shared between symbols
    except the position reducer and metrics, which are concurrency safe
*/
package core
