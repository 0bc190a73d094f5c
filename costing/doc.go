/*
Package costing computes per-account incentive payouts for a trade scheme.

PURPOSE:
  Given a loaded scheme model and its sales rows, the engine produces one
  result row per credit account: base and scheme metrics, growth and
  targets, mandatory product figures, payouts, phasing, bonus schemes,
  estimates and the final payout with its reward text.

RESULT MODEL:
  A Table holds the account keys and one Block per sub-scheme. A Block is
  a set of float64 column arrays keyed by Column{Field, Slot}. Column names
  exist only at output time: Field.Name(slot) plus the sub-scheme suffix
  ("" for the main scheme, "_pN" for additional scheme N).

STAGES:
  accounts -> metrics -> growth -> targets -> mandatory -> payouts
           -> phasing -> bonus -> estimates -> final

  Each Stage declares the outputs it requires and provides. NewPlan orders
  them and rejects unsatisfiable plans with ErrStageDependency. Inside a
  stage, sub-schemes run on an errgroup bounded by the worker count and
  each goroutine writes only its own Block.

UNITS:
  Ratio columns are fractions internally and percentages on output.
  Percent columns are slab-native and emitted unchanged.

SEE ALSO:
  - scheme/: The immutable scheme model
  - sales/: Row selection and aggregation
  - service.go: Fetch, load and run against a Source
*/
package costing
