package treecomm

// Tree is one node's view of the k-ary tree described by a fanout sequence
// (spec §4.3). A node controls a prefix of the levels, 0 through some
// highest level it is the zero-coordinate representative for ("a node
// controls level ℓ iff its coordinates are zero in dimensions 0..ℓ-1");
// above that prefix it participates only as a child, sending its own
// aggregate up and receiving policy down through the level it does control.
type Tree struct {
	Fanouts []int

	// Controlled holds this node's Level objects for levels 0..len-1, i.e.
	// every level this node is the aggregator for, leaf-to-root order.
	// Empty for a node that controls no level above its own leaf.
	Controlled []*Level

	// leafUp is where this node writes its own level-0 contribution (its
	// per-node aggregate sample, the output of appio+agent ascend at the
	// node's own rank group). leafRecv is where that node's level-0 policy
	// from its group's controller lands.
	leafUp   Window
	leafRecv *Mailbox
}

// SendUp0 writes this node's own leaf-level sample into its level-0 group.
func (t *Tree) SendUp0(sample []float64) {
	if t.leafUp != nil {
		t.leafUp.Write(sample)
	}
}

// ReceiveDown0 returns the policy this node's own level-0 controller most
// recently sent it.
func (t *Tree) ReceiveDown0() ([]float64, bool) {
	if t.leafRecv == nil {
		return nil, false
	}
	return t.leafRecv.TryRead(true)
}

// NumControlledLevels reports how many levels, starting at 0, this node
// controls.
func (t *Tree) NumControlledLevels() int { return len(t.Controlled) }

// IsGlobalRoot reports whether this node's highest controlled level has no
// parent, i.e. it sits at the top of the whole tree.
func (t *Tree) IsGlobalRoot() bool {
	if len(t.Controlled) == 0 {
		return false
	}
	return t.Controlled[len(t.Controlled)-1].ParentSendWriter == nil
}

// BytesSent sums the controller-network bandwidth figure across every level
// this node controls, for the Reporter.
func (t *Tree) BytesSent() uint64 {
	var total uint64
	for _, l := range t.Controlled {
		total += l.BytesSent()
	}
	return total
}

// NewSingleNodeTree builds the degenerate one-node tree: no levels to
// control, no parent, used for single-node deployments and unit tests that
// don't need cross-node aggregation.
func NewSingleNodeTree() *Tree {
	return &Tree{Fanouts: []int{1}}
}

// BuildSimulatedForest constructs every node's Tree for an in-process
// simulation of a fanouts-shaped cluster (leaf-to-root fan-out per
// ComputeFanouts), wiring all mailboxes locally. It backs both unit/
// integration tests and a single-process multi-node deployment mode; a
// true multi-process deployment wires the same Level fields through
// p2ptransport instead.
func BuildSimulatedForest(fanouts []int) []*Tree {
	n := 1
	for _, f := range fanouts {
		n *= f
	}
	coords := make([][]int, n)
	for i := 0; i < n; i++ {
		c := make([]int, len(fanouts))
		rem := i
		for d, f := range fanouts {
			c[d] = rem % f
			rem /= f
		}
		coords[i] = c
	}
	indexFromCoords := func(c []int) int {
		idx, mult := 0, 1
		for d, f := range fanouts {
			idx += c[d] * mult
			mult *= f
		}
		return idx
	}
	// controllerIndex returns the node index of the level-`level` group
	// controller that node i belongs to: i's coordinates with every
	// dimension 0..level forced to zero.
	controllerIndex := func(i, level int) int {
		c := append([]int(nil), coords[i]...)
		for d := 0; d <= level; d++ {
			c[d] = 0
		}
		return indexFromCoords(c)
	}

	trees := make([]*Tree, n)
	for i := range trees {
		trees[i] = &Tree{Fanouts: fanouts}
	}

	type key struct{ controller, level int }
	levels := make(map[key]*Level)

	for level := 0; level < len(fanouts); level++ {
		for i := 0; i < n; i++ {
			// i is only a member of a level-`level` group if it already
			// controls every level below it.
			eligible := true
			for d := 0; d < level; d++ {
				if coords[i][d] != 0 {
					eligible = false
					break
				}
			}
			if !eligible {
				continue
			}
			ctrl := controllerIndex(i, level)
			k := key{ctrl, level}
			lv, ok := levels[k]
			if !ok {
				lv = NewLevel(level, fanouts[level])
				levels[k] = lv
				trees[ctrl].Controlled = append(trees[ctrl].Controlled, lv)
			}
			slot := coords[i][level]
			if level == 0 {
				trees[i].leafUp = lv.ChildUp[slot]
			} else {
				trees[i].Controlled[level-1].SetParentLinks(lv.ChildUp[slot], trees[i].Controlled[level-1].ParentRecv)
			}
		}
	}

	// Second pass: wire each controller's downward writers now that every
	// child's receive-side mailbox exists.
	for level := 0; level < len(fanouts); level++ {
		for i := 0; i < n; i++ {
			eligible := true
			for d := 0; d < level; d++ {
				if coords[i][d] != 0 {
					eligible = false
					break
				}
			}
			if !eligible || coords[i][level] != 0 {
				continue // only the controller itself builds the writer list
			}
			lv := levels[key{i, level}]
			writers := make([]Window, fanouts[level])
			for slot := 0; slot < fanouts[level]; slot++ {
				c := append([]int(nil), coords[i]...)
				c[level] = slot
				child := indexFromCoords(c)
				if level == 0 {
					if trees[child].leafRecv == nil {
						trees[child].leafRecv = NewMailbox()
					}
					writers[slot] = trees[child].leafRecv
				} else {
					childLv := trees[child].Controlled[level-1]
					if childLv.ParentRecv == nil {
						childLv.ParentRecv = NewMailbox()
					}
					writers[slot] = childLv.ParentRecv
				}
			}
			lv.SetChildDownWriters(writers)
		}
	}

	return trees
}
