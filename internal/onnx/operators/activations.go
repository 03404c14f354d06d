package operators

// registerActivations adds activation operators to the registry.
// All of them preserve the input's element type and shape; the attributes
// (axis, alpha) do not affect structural wiring, so the handlers only
// validate arity.
func (r *Registry) registerActivations() {
	r.Register("", "Relu", 1, elementwiseUnary)
	r.Register("", "Sigmoid", 1, elementwiseUnary)
	r.Register("", "Tanh", 1, elementwiseUnary)
	r.Register("", "Softmax", 1, elementwiseUnary)
	r.Register("", "LeakyRelu", 1, elementwiseUnary)
	r.Register("", "Elu", 1, elementwiseUnary)
	r.Register("", "Gelu", 20, elementwiseUnary)
}
