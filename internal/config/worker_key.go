package config

type WorkerKeyStruct struct {
	PersistLeavesQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistLeavesQueue: "persist_leaves_queue",
}
