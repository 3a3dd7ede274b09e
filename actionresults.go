package gowfs

// ActionResults 一次事务中某类动作产生的要素 id，按 handle 分组
type ActionResults struct {
	handleToFids      map[string][]string
	handles           []string
	fidsWithoutHandle []string
	total             int
}

func NewActionResults() *ActionResults {
	return &ActionResults{
		handleToFids: make(map[string][]string),
	}
}

// Add handle 为空时记入无 handle 列表
func (a *ActionResults) Add(fid string, handle string) {
	a.total++
	if handle == "" {
		a.fidsWithoutHandle = append(a.fidsWithoutHandle, fid)
		return
	}
	if _, ok := a.handleToFids[handle]; !ok {
		a.handles = append(a.handles, handle)
	}
	a.handleToFids[handle] = append(a.handleToFids[handle], fid)
}

// Handles 按首次出现的顺序
func (a *ActionResults) Handles() []string {
	return a.handles
}

func (a *ActionResults) Fids(handle string) []string {
	return a.handleToFids[handle]
}

func (a *ActionResults) FidsWithoutHandle() []string {
	return a.fidsWithoutHandle
}

func (a *ActionResults) Total() int {
	return a.total
}
