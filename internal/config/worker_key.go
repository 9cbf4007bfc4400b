package config

type WorkerKeyStruct struct {
	RescoreQueue string
}

var WorkerKey = &WorkerKeyStruct{
	RescoreQueue: "rescore_submissions_queue",
}
