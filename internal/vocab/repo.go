package vocab

import "context"

// Repository provides access to the OMOP vocabulary reference tables.
type Repository interface {
	Concepts(ctx context.Context) ([]Concept, error)
	DrugStrengths(ctx context.Context) ([]DrugStrength, error)
}
