// Package checkpoint persists and restores training state in the .nlck format.
//
// A checkpoint holds the model configuration, the next epoch to run, every
// trainable parameter in registry order, Adam's hyperparameters, step
// counter and moments (index-aligned with the parameters), and the metric
// history of the epochs run so far.
//
// # File Layout
//
//	0x00-0x03  magic "NEOL"
//	0x04-0x07  format version (uint32 LE)
//	0x08-0x0B  flags (uint32 LE), bit 0 set when m and v are stored
//	0x0C-0x0F  reserved
//	0x10-0x17  JSON header size (uint64 LE)
//	0x18-0x1F  data section size (uint64 LE)
//	0x20-0x3F  SHA-256 of the JSON header followed by the data section
//	0x40-...   JSON header, zero padding to a 64-byte boundary
//	...        tensor data, little-endian float64
//
// Tensors are named "params.<i>", "m.<i>" and "v.<i>". A file without the
// optimizer flag stores params only and loads with zero moments.
//
// # Basic Usage
//
//	rec := checkpoint.Capture(model, adam, epoch+1)
//	if err := checkpoint.Save("runs/x/last.nlck", rec); err != nil {
//	    return err
//	}
//
//	model, adam, rec, err := checkpoint.Resume("runs/x/last.nlck", tensor.CPU)
package checkpoint
