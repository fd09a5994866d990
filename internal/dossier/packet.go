package dossier

import "time"

// FactPacket 一个主题簇打包成的路由单元
// 路由器以包为粒度做归档决策,包内事实整体落入同一份档案
type FactPacket struct {
	Label         string
	Facts         []string
	SourceBlockID string
	Timestamp     time.Time
}

// RouteResult 一次路由决策的结果
type RouteResult struct {
	DossierID string
	Created   bool
}
