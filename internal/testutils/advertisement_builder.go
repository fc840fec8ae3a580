package testutils

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/srg/myolink/internal/hand"
)

// AdvertisementBuilder builds hand advertisements for testing.
// It provides a fluent API for configuring hand.Advertisement values used to
// stock mocked discovery results.
type AdvertisementBuilder struct {
	address   string
	name      string
	model     string
	muscles   int
	lastSeen  time.Time
	reachable bool
}

// NewAdvertisementBuilder creates a new AdvertisementBuilder with default values.
// The builder starts with reachable=true and lastSeen=now.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{
		lastSeen:  time.Now(),
		reachable: true,
	}
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.address = addr
	return b
}

// WithName sets the device name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.name = name
	return b
}

// WithModel sets the model identifier for the advertisement.
func (b *AdvertisementBuilder) WithModel(model string) *AdvertisementBuilder {
	b.model = model
	return b
}

// WithMuscles sets the advertised muscle count.
func (b *AdvertisementBuilder) WithMuscles(n int) *AdvertisementBuilder {
	b.muscles = n
	return b
}

// WithLastSeen sets when the device was last observed.
func (b *AdvertisementBuilder) WithLastSeen(t time.Time) *AdvertisementBuilder {
	b.lastSeen = t
	return b
}

// WithReachable sets whether the device currently accepts connections.
func (b *AdvertisementBuilder) WithReachable(reachable bool) *AdvertisementBuilder {
	b.reachable = reachable
	return b
}

// FromJSON fills builder fields from a JSON string with format support.
// Panics on invalid JSON as this is intended for test data setup.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var data struct {
		Address   *string `json:"address"`
		Name      *string `json:"name"`
		Model     *string `json:"model"`
		Muscles   *int    `json:"muscles"`
		Reachable *bool   `json:"reachable"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		panic(fmt.Sprintf("FromJSON: failed to unmarshal: %v", err))
	}

	if data.Address != nil {
		b.address = *data.Address
	}
	if data.Name != nil {
		b.name = *data.Name
	}
	if data.Model != nil {
		b.model = *data.Model
	}
	if data.Muscles != nil {
		b.muscles = *data.Muscles
	}
	if data.Reachable != nil {
		b.reachable = *data.Reachable
	}
	return b
}

// Build creates the hand.Advertisement value.
func (b *AdvertisementBuilder) Build() hand.Advertisement {
	return hand.Advertisement{
		Address:   b.address,
		Name:      b.name,
		Model:     b.model,
		Muscles:   b.muscles,
		LastSeen:  b.lastSeen,
		Reachable: b.reachable,
	}
}

// AdvertisementArrayBuilder builds arrays of hand.Advertisement with generic parent support.
// It provides a fluent API for creating multiple advertisements with different configurations
// and supports returning to parent builders through the generic type parameter T.
//
// The builder supports two main patterns:
//   - WithAdvertisements(ads...) adds pre-existing hand.Advertisement(s) to the array
//   - WithNewAdvertisement() returns an AdvertisementBuilder for fluent configuration
//
// Type Parameter:
//
//	T: The type to return from Build(). Common values:
//	  - []hand.Advertisement for standalone usage
//	  - a parent builder type for nested configuration
type AdvertisementArrayBuilder[T any] struct {
	advertisements []hand.Advertisement
	parent         T
	buildFunc      func(T, []hand.Advertisement) T
}

// NewAdvertisementArrayBuilder creates a new array builder with the specified generic type.
func NewAdvertisementArrayBuilder[T any]() *AdvertisementArrayBuilder[T] {
	return &AdvertisementArrayBuilder[T]{
		advertisements: make([]hand.Advertisement, 0),
	}
}

// WithAdvertisements adds pre-existing advertisements to the array and returns the array builder for chaining.
// Supports adding multiple advertisements in a single call.
func (ab *AdvertisementArrayBuilder[T]) WithAdvertisements(ads ...hand.Advertisement) *AdvertisementArrayBuilder[T] {
	ab.advertisements = append(ab.advertisements, ads...)
	return ab
}

// WithNewAdvertisement adds a new advertisement to the array and returns an AdvertisementBuilder.
// When Build() is called on the returned builder, it adds the advertisement to the array
// and returns the AdvertisementArrayBuilder for method chaining.
func (ab *AdvertisementArrayBuilder[T]) WithNewAdvertisement() *AdvertisementArrayBuilderItem[T] {
	return &AdvertisementArrayBuilderItem[T]{
		AdvertisementBuilder: NewAdvertisementBuilder(),
		parent:               ab,
	}
}

// Build returns the parent if it exists and has a buildFunc, otherwise returns the array
func (ab *AdvertisementArrayBuilder[T]) Build() T {
	if ab.buildFunc != nil {
		return ab.buildFunc(ab.parent, ab.advertisements)
	}
	// If no buildFunc, cast advertisements to T (this works for []hand.Advertisement)
	var result interface{} = ab.advertisements
	return result.(T)
}

// AdvertisementArrayBuilderItem wraps AdvertisementBuilder to provide array functionality.
// It embeds AdvertisementBuilder and adds the capability to return to the parent array builder.
type AdvertisementArrayBuilderItem[T any] struct {
	*AdvertisementBuilder
	parent *AdvertisementArrayBuilder[T]
}

// Build adds the advertisement to the parent array and returns the array builder
func (abi *AdvertisementArrayBuilderItem[T]) Build() *AdvertisementArrayBuilder[T] {
	abi.parent.advertisements = append(abi.parent.advertisements, abi.AdvertisementBuilder.Build())
	return abi.parent
}
