// Package containers provides testcontainer management for integration tests.
//
// It starts a real Eclipse Mosquitto MQTT broker so the cross-instance
// broadcast channel can be exercised end to end. Tests using this package
// must carry the "integration" build tag:
//
//	//go:build integration
//
// Containers are typically managed from TestMain:
//
//	var broker *containers.MosquittoContainer
//
//	func TestMain(m *testing.M) {
//	    var err error
//	    broker, err = containers.NewMosquittoContainer(nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    _ = broker.Terminate()
//	    os.Exit(code)
//	}
package containers
