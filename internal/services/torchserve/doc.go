// Package torchserve brings up the TorchServe model server that the
// animation tool's detector talks to.
//
// Up runs three steps: fetch the detector archive when the model store lacks
// it, `torchserve --start --ncs`, then poll the ping endpoint once a second
// until it answers 200 or the timeout elapses.
package torchserve
