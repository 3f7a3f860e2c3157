// Package policy loads, validates, and evaluates declarative YAML policy
// documents. A policy describes track preferences, ordered processing phases,
// and conditional rules; it never touches the filesystem itself. The
// evaluator in package plan turns a policy plus a file's track layout into
// typed actions.
package policy
