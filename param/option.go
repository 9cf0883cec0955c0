package param

import "slices"

// Option overrides one field of a Config.
type Option func(*Config)

func WithSVMType(t SVMType) Option       { return func(c *Config) { c.SVMType = t } }
func WithKernelType(k KernelType) Option { return func(c *Config) { c.KernelType = k } }
func WithDegree(d int) Option            { return func(c *Config) { c.Degree = d } }
func WithGamma(g float64) Option         { return func(c *Config) { c.Gamma = g } }
func WithCoef0(v float64) Option         { return func(c *Config) { c.Coef0 = v } }
func WithCacheSize(mb float64) Option    { return func(c *Config) { c.CacheSize = mb } }
func WithEps(eps float64) Option         { return func(c *Config) { c.Eps = eps } }
func WithC(v float64) Option             { return func(c *Config) { c.C = v } }
func WithNu(nu float64) Option           { return func(c *Config) { c.Nu = nu } }
func WithP(p float64) Option             { return func(c *Config) { c.P = p } }
func WithShrinking(on bool) Option       { return func(c *Config) { c.Shrinking = on } }
func WithProbability(on bool) Option     { return func(c *Config) { c.Probability = on } }

// WithClassWeight scales C for the given class label. Repeated calls for the
// same label keep the last weight. The weight slices are copied before they
// are changed, so configs copied earlier are unaffected.
func WithClassWeight(label int, weight float64) Option {
	return func(c *Config) {
		labels, weights := slices.Clone(c.WeightLabel), slices.Clone(c.Weight)
		if i := slices.Index(labels, label); i >= 0 && i < len(weights) {
			weights[i] = weight
		} else {
			labels = append(labels, label)
			weights = append(weights, weight)
		}
		c.WeightLabel, c.Weight = labels, weights
	}
}
