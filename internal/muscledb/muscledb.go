//go:generate go run ./gen
package muscledb

// This file exists to declare the package and trigger the generator.
// All the generated data and Lookup API will appear in muscledb_generated.go.
// You can import this package and call muscledb.Lookup(model) or check
// muscledb.DataVersion for the data version.
