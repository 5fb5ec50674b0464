// Package containers manages Docker containers for integration tests
// via testcontainers-go: a MySQL 8.0 database and an Eclipse Mosquitto
// MQTT broker.
//
// Containers are shared per test package through TestMain:
//
//	var broker *containers.MosquittoContainer
//
//	func TestMain(m *testing.M) {
//	    var err error
//	    broker, err = containers.NewMosquittoContainer(context.Background(), nil)
//	    if err != nil {
//	        panic(err)
//	    }
//	    code := m.Run()
//	    _ = broker.Terminate(context.Background())
//	    os.Exit(code)
//	}
//
// Tests using this package carry the "integration" build tag:
//
//	go test -tags=integration ./...
package containers
