package coverage

// FacadeBuilderOption is a function that configures a Facade instance during construction.
type FacadeBuilderOption func(*facade)

// WithValidityPredicate is an option builder that sets the predicate contacts must pass to be sampled.
// Defaults to accepting every contact.
//
// Parameters:
//   - valid: the predicate, nil keeps the default
//
// Returns:
//   - FacadeBuilderOption: a function that applies the predicate option to a facade
func WithValidityPredicate(valid ValidityPredicate) FacadeBuilderOption {
	return func(f *facade) {
		if valid != nil {
			f.valid = valid
		}
	}
}
