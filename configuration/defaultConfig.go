package configuration

// defaultConfig loaded anyway when server starts
// may be extended/replaced by user-provided config later
var defaultConfig = []byte(`
version: v0.0.1
system:
  log:
    console:
      level: info # available levels: debug, info, warn, error, dpanic, panic, fatal
health:
  address: ":8081"
auth:
  backend: allowAll # allowAll or static
  anonymous: true
  users:
    testuser:
      password: "e0d7d338cb1259086d775c964fba50b2a84244ba4cd2815e9f6f4a8d9daaa656" # password must be sha-256 hashed
      publish: ["#"]
      subscribe: ["#"]
persistence:
  backend: mem # mem or mongo
  mongo:
    uri: mongodb://localhost:27017
    database: mqcore
    timeout: 5
mqtt:
  keepAlive:
    period: 60
    force: false
  systree:
    enabled: true
    updateInterval: 10
  options:
    connectTimeout: 2
    offlineQoS0: true
    allowReplace: true
    maxQoS: 2
    maxSessions: 0
  sessions:
    defaultExpiry: never # never or go duration: 0s, 1h30m
    maxQueued: 1024
  delivery:
    maxInflight: 32
    retryTimeout: 20
    maxRetries: 5
listeners:
  defaultAddr: ""
  acceptRate: 0
  acceptBurst: 16
  mqtt:
    tcp:
      1883: {}
`)
