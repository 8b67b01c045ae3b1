package testdata

func main() {}
