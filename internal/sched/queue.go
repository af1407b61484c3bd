package sched

import "container/heap"

// taskHeap orders ready tasks by priority, breaking ties FIFO by sequence
// number so equal-priority work is never starved.
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

func (h *taskHeap) push(t *task) { heap.Push(h, t) }

func (h *taskHeap) pop() *task {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(*task)
}

// remove unlinks a specific task, used by queued-task cancellation.
func (h *taskHeap) remove(t *task) bool {
	for i, cur := range *h {
		if cur == t {
			heap.Remove(h, i)
			return true
		}
	}
	return false
}
