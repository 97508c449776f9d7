// Package flowcontrol provides operations that regroup values arriving from
// independently paced branches.
//
// # GroupCapturer
//
// A GroupCapturer has N data inputs. Input i belongs to group i/S at slot
// i%S, where S is the configured group size. Values are buffered per group
// and slot; when every slot of a group has a value, or a default for that
// slot, the group's Row is emitted on output "row" and the consumed values
// are removed. Partial groups never leak and never block each other.
//
//	gc, err := flowcontrol.NewGroupCapturer("rows", flowcontrol.GroupCapturerConfig{
//	    Inputs:    5,
//	    GroupSize: 3,
//	    Defaults:  map[string]any{"2": 5},
//	}, deps)
//
// # ObjectCapturer
//
// An ObjectCapturer collects the values of its data inputs into rounds keyed
// by the value received on its "sync" input. With "sync" unconnected every
// cycle is forwarded on "objects" immediately. With "sync" connected a round
// is closed either by the next sync value (completion "next-sync") or by the
// round end marker framing the data inputs (completion "end-marker"). On
// close the sync value is emitted on output "sync", followed by the round's
// lists on output "objects".
//
// List shapes:
//
//	per-input: [[in0 values...], [in1 values...], ...]
//	per-cycle: [[cycle1 in0, cycle1 in1, ...], [cycle2 ...], ...]
package flowcontrol
