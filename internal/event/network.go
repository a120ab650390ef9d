package event

// Network is the deployment environment the party operates in. Fee
// floors and a few settlement guards differ between mainnet and the
// test networks.
type Network string

const (
	NetworkMain Network = "main"
	NetworkTest Network = "test"
	NetworkDev  Network = "dev"
)

func (n Network) IsMain() bool {
	return n == NetworkMain
}
